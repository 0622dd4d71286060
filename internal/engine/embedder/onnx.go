package embedder

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	inputIDsName      = "input_ids"
	attentionMaskName = "attention_mask"
	tokenTypeIDsName  = "token_type_ids"

	hiddenStateOutput = "last_hidden_state"
	defaultOpThreads  = 4
)

// The runtime is process-wide: the first library path wins.
var ortRuntime struct {
	once sync.Once
	lib  string
	err  error
}

func initRuntime(libPath string) error {
	ortRuntime.once.Do(func() {
		ortRuntime.lib = libPath
		ort.SetSharedLibraryPath(libPath)
		ortRuntime.err = ort.InitializeEnvironment()
	})
	if ortRuntime.err == nil && ortRuntime.lib != libPath {
		return fmt.Errorf("onnx: runtime already loaded from %s, cannot switch to %s", ortRuntime.lib, libPath)
	}
	return ortRuntime.err
}

// onnxSession runs a BERT-family encoder and returns per-token hidden states
// [batch, seq, dim]. Encoders without segment embeddings (no token_type_ids
// input) are supported.
type onnxSession struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	embedDim   int64
	withTypes  bool
}

// newONNXSession opens modelPath. libPath defaults to libonnxruntime.so next
// to the model; intraThreads <= 0 uses four threads.
func newONNXSession(modelPath, libPath string, intraThreads int) (*onnxSession, error) {
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	}
	if err := initRuntime(libPath); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: inspect %s: %w", filepath.Base(modelPath), err)
	}
	s := &onnxSession{}
	if s.inputNames, s.withTypes, err = bindInputs(inputs); err != nil {
		return nil, err
	}
	if s.outputName, s.embedDim, err = pickHiddenState(outputs); err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: session options: %w", err)
	}
	defer opts.Destroy()
	if intraThreads <= 0 {
		intraThreads = defaultOpThreads
	}
	if err := opts.SetIntraOpNumThreads(intraThreads); err != nil {
		return nil, fmt.Errorf("onnx: intra-op threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("onnx: inter-op threads: %w", err)
	}

	s.session, err = ort.NewDynamicAdvancedSession(modelPath, s.inputNames, []string{s.outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: open session: %w", err)
	}
	return s, nil
}

// bindInputs orders the encoder inputs the way infer feeds them.
func bindInputs(inputs []ort.InputOutputInfo) (names []string, withTypes bool, err error) {
	have := make([]string, len(inputs))
	for i, in := range inputs {
		have[i] = in.Name
	}
	for _, name := range []string{inputIDsName, attentionMaskName} {
		if !slices.Contains(have, name) {
			return nil, false, fmt.Errorf("onnx: model has no %q input (inputs: %v)", name, have)
		}
	}
	names = []string{inputIDsName, attentionMaskName}
	if slices.Contains(have, tokenTypeIDsName) {
		names = append(names, tokenTypeIDsName)
		withTypes = true
	}
	return names, withTypes, nil
}

// pickHiddenState prefers last_hidden_state and otherwise takes the first
// rank-3 output. Its last dimension must be static.
func pickHiddenState(outputs []ort.InputOutputInfo) (string, int64, error) {
	var chosen *ort.InputOutputInfo
	for i := range outputs {
		if len(outputs[i].Dimensions) != 3 {
			continue
		}
		if outputs[i].Name == hiddenStateOutput {
			chosen = &outputs[i]
			break
		}
		if chosen == nil {
			chosen = &outputs[i]
		}
	}
	if chosen == nil {
		return "", 0, fmt.Errorf("onnx: no [batch, seq, dim] output among %d outputs", len(outputs))
	}
	dim := chosen.Dimensions[2]
	if dim <= 0 {
		return "", 0, fmt.Errorf("onnx: output %q has dynamic hidden width", chosen.Name)
	}
	return chosen.Name, dim, nil
}

// infer takes flat [batchSize*seqLen] token tensors and returns a copy of the
// flat [batchSize*seqLen*embedDim] hidden states. typeIDs is ignored when the
// model has no token_type_ids input.
func (s *onnxSession) infer(ids, mask, typeIDs []int64, batchSize, seqLen int64) ([]float32, error) {
	shape := ort.NewShape(batchSize, seqLen)
	feeds := [][]int64{ids, mask}
	if s.withTypes {
		feeds = append(feeds, typeIDs)
	}

	in := make([]ort.Value, 0, len(feeds))
	defer func() {
		for _, v := range in {
			v.Destroy()
		}
	}()
	for i, data := range feeds {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("onnx: %s tensor: %w", s.inputNames[i], err)
		}
		in = append(in, t)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(batchSize, seqLen, s.embedDim))
	if err != nil {
		return nil, fmt.Errorf("onnx: output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.session.Run(in, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: run batch of %d: %w", batchSize, err)
	}
	return slices.Clone(out.GetData()), nil
}

func (s *onnxSession) close() error {
	return s.session.Destroy()
}
