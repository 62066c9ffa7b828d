package detect

import (
	"fmt"
	"os"
	"sync"

	tflite "github.com/tphakala/go-tflite"
)

// TFLiteClassifier wraps a TensorFlow Lite interpreter for one domain
// model. The interpreter is not reentrant, so Predict serializes calls.
type TFLiteClassifier struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter
	labels      []string
}

// NewTFLiteClassifier loads a .tflite model artifact and allocates its
// tensors. The label list order must match the model's output layer.
func NewTFLiteClassifier(modelPath string, labels []string) (*TFLiteClassifier, error) {
	modelData, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model from %s", modelPath)
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(4)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, fmt.Errorf("cannot create interpreter for %s", modelPath)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return nil, fmt.Errorf("tensor allocation failed for %s", modelPath)
	}

	return &TFLiteClassifier{interpreter: interpreter, labels: labels}, nil
}

// Predict runs inference on a prepared input tensor and returns the raw
// output values (logits or probabilities, depending on the model export).
func (c *TFLiteClassifier) Predict(input []float32) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inputTensor := c.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	if len(inputTensor.Float32s()) != len(input) {
		return nil, fmt.Errorf("input size mismatch: tensor wants %d values, got %d",
			len(inputTensor.Float32s()), len(input))
	}
	copy(inputTensor.Float32s(), input)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := c.interpreter.GetOutputTensor(0)
	predSize := outputTensor.Dim(outputTensor.NumDims() - 1)
	predictions := make([]float32, predSize)
	copy(predictions, outputTensor.Float32s())
	return predictions, nil
}

func (c *TFLiteClassifier) Labels() []string { return c.labels }

// NumOutputs reports the size of the model's output layer.
func (c *TFLiteClassifier) NumOutputs() int {
	outputTensor := c.interpreter.GetOutputTensor(0)
	return outputTensor.Dim(outputTensor.NumDims() - 1)
}

// SetLabels replaces the label vocabulary. Only called during registry
// construction, before the classifier is shared.
func (c *TFLiteClassifier) SetLabels(labels []string) { c.labels = labels }
