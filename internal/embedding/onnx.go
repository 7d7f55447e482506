//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultInputName  = "pixel_values"
	defaultOutputName = "image_embeds"
)

// ONNXEncoder runs an exported CLIP vision tower through ONNX Runtime. It requires CGO
// and the onnxruntime shared library. The session is inference-only, so no gradient state
// accumulates across a batch.
type ONNXEncoder struct {
	session    *ort.AdvancedSession
	dimensions int
	imageSize  int
	model      string
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXEncoder creates an ONNX encoder. InitializeEnvironment is called if not already done.
func NewONNXEncoder(opts Options) (*ONNXEncoder, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	size := opts.ImageSize
	if size <= 0 {
		size = DefaultImageSize
	}
	inputName := opts.InputName
	if inputName == "" {
		inputName = defaultInputName
	}
	outputName := opts.OutputName
	if outputName == "" {
		outputName = defaultOutputName
	}

	if !ort.IsInitialized() {
		if opts.RuntimeLibrary != "" {
			ort.SetSharedLibraryPath(opts.RuntimeLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inputData := make([]float32, 3*size*size)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputData := make([]float32, opts.Dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(opts.Dimensions)), outputData)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	model := opts.ModelName
	if model == "" {
		model = opts.ModelPath
	}
	return &ONNXEncoder{
		session:      session,
		dimensions:   opts.Dimensions,
		imageSize:    size,
		model:        model,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Embed preprocesses img and returns a flattened copy of the model output.
func (e *ONNXEncoder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pixels := Preprocess(img, e.imageSize)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("encoder is closed")
	}

	copy(e.inputTensor.GetData(), pixels)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := e.outputTensor.GetData()
	embedding := make([]float32, e.dimensions)
	copy(embedding, outputData[:e.dimensions])
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEncoder) Dimensions() int {
	return e.dimensions
}

// Model returns the configured model identifier.
func (e *ONNXEncoder) Model() string {
	return e.model
}

// Close destroys the session and tensors.
func (e *ONNXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
