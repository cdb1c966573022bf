package models

import "math"

const (
	ActivationTanh    = "tanh"
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
)

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}

func activate(name string, v float64) float64 {
	switch name {
	case ActivationReLU:
		return math.Max(0, v)
	case ActivationSigmoid:
		return sigmoid(v)
	case ActivationTanh:
		return math.Tanh(v)
	default:
		return v
	}
}

// activateGrad returns the derivative of the activation with respect to its
// pre-activation input v.
func activateGrad(name string, v float64) float64 {
	switch name {
	case ActivationReLU:
		if v > 0 {
			return 1
		}
		return 0
	case ActivationSigmoid:
		s := sigmoid(v)
		return s * (1 - s)
	case ActivationTanh:
		th := math.Tanh(v)
		return 1 - th*th
	default:
		return 1
	}
}
