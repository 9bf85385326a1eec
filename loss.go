package gan_trainer

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

func reduce(n *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(n)
	case LossReductionMean:
		return gorgonia.Mean(n)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// MSELoss See ref. https://en.wikipedia.org/wiki/Mean_squared_error
// Default reduction is 'mean'
func MSELoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	sqr, err := gorgonia.Square(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	return reduce(sqr, reduction)
}

// BinaryCrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// A must contain probabilities (e.g. output of sigmoid), B contains targets: sample could belong to 0 or 1 only.
// Default reduction is 'mean'
func BinaryCrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	logMain, err := gorgonia.Log(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	hprodMain, err := gorgonia.HadamardProd(logMain, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*B)")
	}

	onesTensor := gorgonia.NewTensor(a.Graph(), a.Dtype(), a.Dims(), gorgonia.WithShape(a.Shape()...), gorgonia.WithInit(gorgonia.Ones()))
	subA, err := gorgonia.Sub(onesTensor, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	logBin, err := gorgonia.Log(subA)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1-A)")
	}
	subB, err := gorgonia.Sub(onesTensor, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	hprodBin, err := gorgonia.HadamardProd(logBin, subB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*(1-B))")
	}
	sum, err := gorgonia.Add(hprodMain, hprodBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	neg, err := gorgonia.Neg(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	return reduce(neg, reduction)
}

// BinaryCrossEntropyWithLogitsLoss Same as BinaryCrossEntropyLoss, but A contains logits.
// Computed as softplus(A) - A*B which does not saturate like log(sigmoid(A)) does.
// Default reduction is 'mean'
func BinaryCrossEntropyWithLogitsLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	softplus, err := gorgonia.Softplus(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do softplus(A)")
	}
	hprod, err := gorgonia.HadamardProd(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A.*B)")
	}
	sub, err := gorgonia.Sub(softplus, hprod)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-y)")
	}
	return reduce(sub, reduction)
}

// GeneratorLossFunc Loss of generator. It sees discriminator's scores of generated samples only.
type GeneratorLossFunc func(fakeScores *gorgonia.Node) (*gorgonia.Node, error)

// DiscriminatorLossFunc Loss of discriminator over scores of real and generated samples.
type DiscriminatorLossFunc func(realScores, fakeScores *gorgonia.Node) (*gorgonia.Node, error)

// LossPair Adversarial objectives
type LossPair struct {
	Generator     GeneratorLossFunc
	Discriminator DiscriminatorLossFunc
	// ScoreActivation Activation the discriminator's output layer must have. ActivationNone puts no restriction on scores.
	ScoreActivation Activation
}

// LossKind Name of predefined LossPair
type LossKind string

const (
	// LossBCE Cross entropy over discriminator logits (discriminator has no output activation)
	LossBCE = LossKind("bce")
	// LossBCESigmoid Cross entropy over discriminator probabilities (discriminator ends with sigmoid)
	LossBCESigmoid = LossKind("bce_sigmoid")
	// LossLeastSquares LSGAN objectives: squared distance to 1 (real) and 0 (fake)
	LossLeastSquares = LossKind("lsgan")
)

// Losses Returns predefined LossPair
func Losses(kind LossKind) (LossPair, error) {
	var targetLoss func(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error)
	scoreActivation := ActivationNone
	switch kind {
	case LossBCE, "":
		targetLoss = BinaryCrossEntropyWithLogitsLoss
	case LossBCESigmoid:
		// log(A) and log(1-A) are defined for probabilities only
		targetLoss = BinaryCrossEntropyLoss
		scoreActivation = ActivationSigmoid
	case LossLeastSquares:
		targetLoss = MSELoss
	default:
		return LossPair{}, fmt.Errorf("Loss kind '%s' is not handled", kind)
	}
	return LossPair{
		Generator: func(fakeScores *gorgonia.Node) (*gorgonia.Node, error) {
			// Generator wants discriminator to take generated samples as real ones
			return targetLoss(fakeScores, constantLike(fakeScores, 1.0))
		},
		Discriminator: func(realScores, fakeScores *gorgonia.Node) (*gorgonia.Node, error) {
			realLoss, err := targetLoss(realScores, constantLike(realScores, 1.0))
			if err != nil {
				return nil, errors.Wrap(err, "Can't evaluate loss on real samples")
			}
			fakeLoss, err := targetLoss(fakeScores, constantLike(fakeScores, 0.0))
			if err != nil {
				return nil, errors.Wrap(err, "Can't evaluate loss on generated samples")
			}
			return gorgonia.Add(realLoss, fakeLoss)
		},
		ScoreActivation: scoreActivation,
	}, nil
}

// constantLike Returns node with shape of provided one filled with value
func constantLike(n *gorgonia.Node, value float64) *gorgonia.Node {
	return gorgonia.NewTensor(n.Graph(), n.Dtype(), n.Dims(), gorgonia.WithShape(n.Shape()...), gorgonia.WithInit(gorgonia.ValuesOf(value)))
}
