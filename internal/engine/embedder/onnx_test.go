package embedder

import (
	"os"
	"reflect"
	"testing"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	testModelPath = "../../../models/model_quantized.onnx"
	testVocabPath = "../../../models/vocab.txt"
)

func skipIfNoModel(t *testing.T) {
	t.Helper()
	for _, p := range []string{testModelPath, testVocabPath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			t.Skip("model files not found; run 'make download-model' first")
		}
	}
}

func TestONNXSessionLoad(t *testing.T) {
	skipIfNoModel(t)

	sess, err := newONNXSession(testModelPath, "", 0)
	if err != nil {
		t.Fatalf("failed to load ONNX session: %v", err)
	}
	defer sess.close()

	if sess.embedDim <= 0 {
		t.Errorf("expected positive embedDim, got %d", sess.embedDim)
	}

	t.Logf("input names: %v", sess.inputNames)
	t.Logf("output name: %s", sess.outputName)
	t.Logf("embed dim: %d", sess.embedDim)
}

func TestONNXInference(t *testing.T) {
	skipIfNoModel(t)

	sess, err := newONNXSession(testModelPath, "", 0)
	if err != nil {
		t.Fatalf("failed to load ONNX session: %v", err)
	}
	defer sess.close()

	// Minimal input: [CLS]=101, [SEP]=102, rest padding.
	const seqLen = 8
	inputIDs := []int64{101, 102, 0, 0, 0, 0, 0, 0}
	attentionMask := []int64{1, 1, 0, 0, 0, 0, 0, 0}
	tokenTypeIDs := make([]int64, seqLen)

	out, err := sess.infer(inputIDs, attentionMask, tokenTypeIDs, 1, seqLen)
	if err != nil {
		t.Fatalf("inference failed: %v", err)
	}

	expectedLen := seqLen * int(sess.embedDim)
	if len(out) != expectedLen {
		t.Fatalf("expected output length %d, got %d", expectedLen, len(out))
	}

	// Verify we got actual values, not all zeros.
	allZero := true
	for _, v := range out {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Error("output is all zeros: model may not be producing real embeddings")
	}

	t.Logf("first 5 values of CLS token embedding: %v", out[:5])
}

func TestONNXBatchInference(t *testing.T) {
	skipIfNoModel(t)

	sess, err := newONNXSession(testModelPath, "", 0)
	if err != nil {
		t.Fatalf("failed to load ONNX session: %v", err)
	}
	defer sess.close()

	const batchSize, seqLen = 2, 8

	// Two sequences: [CLS] hello [SEP] pad... and [CLS] world [SEP] pad...
	inputIDs := []int64{
		101, 7592, 102, 0, 0, 0, 0, 0, // "hello"
		101, 2088, 102, 0, 0, 0, 0, 0, // "world"
	}
	attentionMask := []int64{
		1, 1, 1, 0, 0, 0, 0, 0,
		1, 1, 1, 0, 0, 0, 0, 0,
	}
	tokenTypeIDs := make([]int64, batchSize*seqLen)

	out, err := sess.infer(inputIDs, attentionMask, tokenTypeIDs, batchSize, seqLen)
	if err != nil {
		t.Fatalf("batch inference failed: %v", err)
	}

	expectedLen := batchSize * seqLen * int(sess.embedDim)
	if len(out) != expectedLen {
		t.Fatalf("expected output length %d, got %d", expectedLen, len(out))
	}

	t.Logf("batch inference produced %d float32 values", len(out))
}

func TestONNXEmbedderEndToEnd(t *testing.T) {
	skipIfNoModel(t)

	emb, err := NewONNX(ONNXOptions{ModelPath: testModelPath, VocabPath: testVocabPath, MaxSeqLen: 32})
	if err != nil {
		t.Fatalf("NewONNX: %v", err)
	}
	defer emb.Close()

	vecs, err := emb.EmbedBatch([]string{"cable electrico de cobre", "tubo de pvc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != emb.Dim() {
		t.Fatalf("unexpected shape %d x %d (dim %d)", len(vecs), len(vecs[0]), emb.Dim())
	}
	same := true
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}

	empty, err := emb.EmbedBatch(nil)
	if err != nil || empty != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", empty, err)
	}
}

func TestBindInputs(t *testing.T) {
	names, withTypes, err := bindInputs([]ort.InputOutputInfo{
		{Name: "attention_mask"}, {Name: "token_type_ids"}, {Name: "input_ids"},
	})
	if err != nil {
		t.Fatalf("bindInputs: %v", err)
	}
	if !withTypes || !reflect.DeepEqual(names, []string{"input_ids", "attention_mask", "token_type_ids"}) {
		t.Errorf("got %v withTypes=%v", names, withTypes)
	}

	names, withTypes, err = bindInputs([]ort.InputOutputInfo{{Name: "input_ids"}, {Name: "attention_mask"}})
	if err != nil {
		t.Fatalf("bindInputs without segments: %v", err)
	}
	if withTypes || len(names) != 2 {
		t.Errorf("got %v withTypes=%v", names, withTypes)
	}

	if _, _, err := bindInputs([]ort.InputOutputInfo{{Name: "input_ids"}}); err == nil {
		t.Error("expected error for missing attention_mask")
	}
}

func TestPickHiddenState(t *testing.T) {
	name, dim, err := pickHiddenState([]ort.InputOutputInfo{
		{Name: "pooler_output", Dimensions: ort.NewShape(-1, 384)},
		{Name: "hidden", Dimensions: ort.NewShape(-1, -1, 256)},
		{Name: "last_hidden_state", Dimensions: ort.NewShape(-1, -1, 384)},
	})
	if err != nil {
		t.Fatalf("pickHiddenState: %v", err)
	}
	if name != "last_hidden_state" || dim != 384 {
		t.Errorf("got %q dim %d", name, dim)
	}

	name, dim, err = pickHiddenState([]ort.InputOutputInfo{{Name: "hidden", Dimensions: ort.NewShape(-1, -1, 256)}})
	if err != nil || name != "hidden" || dim != 256 {
		t.Errorf("fallback: got %q dim %d err %v", name, dim, err)
	}

	if _, _, err := pickHiddenState([]ort.InputOutputInfo{{Name: "h", Dimensions: ort.NewShape(-1, -1, -1)}}); err == nil {
		t.Error("expected error for dynamic width")
	}
	if _, _, err := pickHiddenState(nil); err == nil {
		t.Error("expected error for no outputs")
	}
}
