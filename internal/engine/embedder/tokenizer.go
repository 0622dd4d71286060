package embedder

// tokenized holds a batch ready for ONNX inference. All slices are flat
// [batchSize * seqLen].
type tokenized struct {
	inputIDs      []int64
	attentionMask []int64
	tokenTypeIDs  []int64
	batchSize     int64
	seqLen        int64
}

// tokenizer performs BERT-style WordPiece tokenization with a fixed maximum
// sequence length.
type tokenizer struct {
	vocab     *vocab
	maxSeqLen int
}

func newTokenizer(vocabPath string, maxSeqLen int) (*tokenizer, error) {
	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	return &tokenizer{vocab: v, maxSeqLen: maxSeqLen}, nil
}

// tokenize returns [CLS] wordpieces... [SEP] padded to maxSeqLen. Wordpieces
// past maxSeqLen-2 are dropped.
func (t *tokenizer) tokenize(text string) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	pieces := t.wordpiece(BasicTokens(text))
	if limit := t.maxSeqLen - 2; len(pieces) > limit {
		pieces = pieces[:limit]
	}

	ids := make([]int64, t.maxSeqLen)
	mask := make([]int64, t.maxSeqLen)
	typeIDs := make([]int64, t.maxSeqLen)

	ids[0], mask[0] = t.vocab.clsID, 1
	for i, p := range pieces {
		ids[i+1], mask[i+1] = t.vocab.lookup(p), 1
	}
	ids[len(pieces)+1], mask[len(pieces)+1] = t.vocab.sepID, 1
	for i := len(pieces) + 2; i < t.maxSeqLen; i++ {
		ids[i] = t.vocab.padID
	}
	return ids, mask, typeIDs
}

// tokenizeBatch packs texts into flat slices trimmed to the longest real
// sequence in the batch (never longer than maxSeqLen).
func (t *tokenizer) tokenizeBatch(texts []string) tokenized {
	n := len(texts)
	if n == 0 {
		return tokenized{}
	}

	ids := make([][]int64, n)
	masks := make([][]int64, n)
	longest := 0
	for i, text := range texts {
		ids[i], masks[i], _ = t.tokenize(text)
		used := 0
		for _, m := range masks[i] {
			used += int(m)
		}
		longest = max(longest, used)
	}

	seqLen := int64(longest)
	total := int64(n) * seqLen
	out := tokenized{
		inputIDs:      make([]int64, total),
		attentionMask: make([]int64, total),
		tokenTypeIDs:  make([]int64, total),
		batchSize:     int64(n),
		seqLen:        seqLen,
	}
	for i := range texts {
		off := int64(i) * seqLen
		copy(out.inputIDs[off:off+seqLen], ids[i][:seqLen])
		copy(out.attentionMask[off:off+seqLen], masks[i][:seqLen])
	}
	return out
}

func (t *tokenizer) wordpiece(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		if tok != "" {
			out = append(out, t.wordpieceToken(tok)...)
		}
	}
	return out
}

// wordpieceToken splits one basic token greedily, longest match first. A token
// with any undecomposable span becomes a single [UNK].
func (t *tokenizer) wordpieceToken(token string) []string {
	runes := []rune(token)
	if len(runes) > 200 {
		return []string{unkToken}
	}

	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if t.vocab.contains(sub) {
				pieces = append(pieces, sub)
				break
			}
		}
		if end == start {
			return []string{unkToken}
		}
		start = end
	}
	return pieces
}
