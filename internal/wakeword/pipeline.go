package wakeword

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// pipeline holds the three openWakeWord models and their tensors, plus the
// rolling mel and embedding buffers between them.
type pipeline struct {
	melspecIn, melspecOut *ort.Tensor[float32]
	embedIn, embedOut     *ort.Tensor[float32]
	wwIn, wwOut           *ort.Tensor[float32]

	melspec, embed, wakeword *ort.AdvancedSession

	melBuffer   []float32
	embedBuffer []float32
	audioRem    []int16
	embeds      int // embeddings computed since the last reset
}

// newPipeline loads the models. The ONNX runtime environment must be
// initialized.
func newPipeline(cfg Config) (p *pipeline, err error) {
	p = &pipeline{
		melBuffer:   make([]float32, 0, 300*melBins),
		embedBuffer: make([]float32, nEmbedFrames*embeddingDim),
		audioRem:    make([]int16, 0, chunkSamples*2),
	}
	defer func() {
		if err != nil {
			p.close()
		}
	}()

	if p.melspecIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, chunkSamples)); err != nil {
		return nil, err
	}
	if p.melspecOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, nMelFrames, melBins)); err != nil {
		return nil, err
	}
	if p.melspec, err = newSession(cfg.MelspecModel, p.melspecIn, p.melspecOut); err != nil {
		return nil, fmt.Errorf("melspectrogram model: %w", err)
	}

	if p.embedIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, melWindowSize, melBins, 1)); err != nil {
		return nil, err
	}
	if p.embedOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, 1, embeddingDim)); err != nil {
		return nil, err
	}
	if p.embed, err = newSession(cfg.EmbeddingModel, p.embedIn, p.embedOut); err != nil {
		return nil, fmt.Errorf("embedding model: %w", err)
	}

	if p.wwIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, nEmbedFrames, embeddingDim)); err != nil {
		return nil, err
	}
	if p.wwOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		return nil, err
	}
	if p.wakeword, err = newSession(cfg.WakewordModel, p.wwIn, p.wwOut); err != nil {
		return nil, fmt.Errorf("wakeword model: %w", err)
	}
	return p, nil
}

func newSession(model string, in, out *ort.Tensor[float32]) (*ort.AdvancedSession, error) {
	inInfo, outInfo, err := ort.GetInputOutputInfo(model)
	if err != nil {
		return nil, err
	}
	return ort.NewAdvancedSession(
		model,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
}

func (p *pipeline) close() {
	for _, s := range []*ort.AdvancedSession{p.melspec, p.embed, p.wakeword} {
		if s != nil {
			_ = s.Destroy()
		}
	}
	for _, t := range []*ort.Tensor[float32]{p.melspecIn, p.melspecOut, p.embedIn, p.embedOut, p.wwIn, p.wwOut} {
		if t != nil {
			_ = t.Destroy()
		}
	}
}

// reset flushes buffered audio, mel frames and embeddings so stale
// context doesn't pollute scoring after a pause.
func (p *pipeline) reset() {
	p.melBuffer = p.melBuffer[:0]
	for i := range p.embedBuffer {
		p.embedBuffer[i] = 0
	}
	p.audioRem = p.audioRem[:0]
	p.embeds = 0
}

// feed appends captured samples and scores every complete 80 ms chunk.
// score is called once per new embedding.
func (p *pipeline) feed(frame []int16, score func(float32)) error {
	p.audioRem = append(p.audioRem, frame...)

	for len(p.audioRem) >= chunkSamples {
		inData := p.melspecIn.GetData()
		for i, v := range p.audioRem[:chunkSamples] {
			inData[i] = float32(v)
		}
		// Compact: copy the remainder to the front to release old memory.
		n := copy(p.audioRem, p.audioRem[chunkSamples:])
		p.audioRem = p.audioRem[:n]

		// Step 1: melspectrogram.
		if err := p.melspec.Run(); err != nil {
			return fmt.Errorf("melspec run: %w", err)
		}
		melData := p.melspecOut.GetData()
		for i := 0; i < nMelFrames*melBins && i < len(melData); i++ {
			p.melBuffer = append(p.melBuffer, melData[i]/10.0+2.0)
		}

		// Step 2: embeddings over a sliding mel window.
		totalMel := len(p.melBuffer) / melBins
		newEmbed := false
		for totalMel >= melWindowSize {
			copy(p.embedIn.GetData(), p.melBuffer[:melWindowSize*melBins])
			if err := p.embed.Run(); err != nil {
				return fmt.Errorf("embed run: %w", err)
			}
			copy(p.embedBuffer, p.embedBuffer[embeddingDim:])
			copy(p.embedBuffer[(nEmbedFrames-1)*embeddingDim:], p.embedOut.GetData()[:embeddingDim])
			newEmbed = true

			n := copy(p.melBuffer, p.melBuffer[melStepSize*melBins:])
			p.melBuffer = p.melBuffer[:n]
			totalMel = len(p.melBuffer) / melBins
		}
		if !newEmbed {
			continue
		}
		p.embeds++

		// Step 3: score. Only the most recent embeddings are real; the rest
		// are zeroed, which matches the fresh-start state the model scores
		// best on and keeps long silence from suppressing detection.
		wwData := p.wwIn.GetData()
		padSlots := nEmbedFrames - recentWindow
		for i := 0; i < padSlots*embeddingDim; i++ {
			wwData[i] = 0
		}
		copy(wwData[padSlots*embeddingDim:], p.embedBuffer[padSlots*embeddingDim:])
		if err := p.wakeword.Run(); err != nil {
			return fmt.Errorf("wakeword run: %w", err)
		}
		score(p.wwOut.GetData()[0])
	}
	return nil
}
