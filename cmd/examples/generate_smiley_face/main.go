package main

import (
	"fmt"
	"log"
	"time"

	gan "github.com/LdDl/gan-trainer-go"
	"gorgonia.org/tensor"
)

var (
	learningRate    = 0.001
	batchSize       = 4
	imgHeight       = 10
	imgWidth        = 9
	imgChannels     = 1
	latentSpaceSize = 16
	numEpoches      = 1500
	evalPrint       = 100
	faceData        = []float64{
		0, 1, 1, 0, 0, 0, 1, 1, 0,
		0, 1, 1, 0, 0, 0, 1, 1, 0,
		0, 1, 1, 0, 0, 0, 1, 1, 0,
		0, 1, 1, 0, 0, 0, 1, 1, 0,
		0, 0, 0, 0, 1, 0, 0, 0, 0,
		0, 0, 0, 0, 1, 0, 0, 0, 0,
		0, 0, 0, 1, 1, 1, 0, 0, 0,
		1, 1, 0, 0, 0, 0, 0, 1, 1,
		0, 1, 1, 1, 0, 1, 1, 1, 0,
		0, 0, 0, 1, 1, 1, 0, 0, 0,
	}
)

// genSyntheticData Repeats the face numSamples times as NHWC batch with values scaled to [-1, 1]
func genSyntheticData(numSamples int) *tensor.Dense {
	fmt.Println("Actual smiley face:")
	printFace(faceData, 0.5)
	backing := make([]float64, 0, numSamples*len(faceData))
	for i := 0; i < numSamples; i++ {
		for _, v := range faceData {
			backing = append(backing, 2*v-1)
		}
	}
	return tensor.New(tensor.WithShape(numSamples, imgHeight, imgWidth, imgChannels), tensor.WithBacking(backing))
}

func printFace(data []float64, threshold float64) {
	for x := 0; x < imgHeight; x++ {
		fmt.Printf("\t")
		for y := 0; y < imgWidth; y++ {
			char := "x"
			if data[x*imgWidth+y] < threshold {
				char = " "
			}
			fmt.Printf("%s ", char)
		}
		fmt.Println()
	}
}

func main() {
	trainDataLength := 8
	samples := genSyntheticData(trainDataLength)
	trainSet, err := gan.NewTensorDataset(samples, batchSize, true, 1337)
	if err != nil {
		log.Fatalf("failed to prepare dataset: %v", err)
	}

	definedGenerator := defineGenerator()
	definedDiscriminator := defineDiscriminator()
	ts, err := gan.NewTrainingState(definedGenerator, definedDiscriminator, gan.StateConfig{
		NoiseDim:                  latentSpaceSize,
		NumExamplesToGenerate:     1,
		SampleShape:               []int{imgHeight, imgWidth, imgChannels},
		GeneratorLearningRate:     learningRate,
		DiscriminatorLearningRate: learningRate,
		RandomSeed:                1337,
	})
	if err != nil {
		log.Fatalf("failed to init training state: %v", err)
	}
	defer ts.Close()

	losses, err := gan.Losses(gan.LossBCESigmoid)
	if err != nil {
		log.Fatalf("invalid loss: %v", err)
	}
	step, err := gan.CompileStep(ts, losses, gan.WithBatchSizes(batchSize))
	if err != nil {
		log.Fatalf("failed to compile train step: %v", err)
	}
	defer step.Close()

	st := time.Now()
	for epoch := 1; epoch <= numEpoches; epoch++ {
		if err := trainSet.Reset(); err != nil {
			log.Fatalf("failed to reset dataset: %v", err)
		}
		var genLoss, discLoss float64
		for {
			batch, err := trainSet.Next()
			if err != nil {
				break
			}
			genLoss, discLoss, err = step.Run(ts, batch)
			if err != nil {
				log.Fatalf("train step failed: %v", err)
			}
		}
		if epoch%evalPrint == 0 {
			fmt.Printf("Epoch %d:\n", epoch)
			fmt.Printf("\tDiscriminator's loss: %v\n", discLoss)
			fmt.Printf("\tGenerator's loss: %v\n", genLoss)
			fmt.Printf("\tTaken time: %v\n", time.Since(st))
			st = time.Now()
			if err := printGenerated(ts); err != nil {
				log.Fatalf("failed to generate face: %v", err)
			}
		}
	}

	// Final test of Generator
	fmt.Println("Start testing generator after final epoch")
	if err := printGenerated(ts); err != nil {
		log.Fatalf("failed to generate face: %v", err)
	}

	/* Face and 'not a face' */
	notFace := []float64{
		0, 0, 0, 0, 0, 0, 0, 1, 1,
		0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 1, 0,
		0, 0, 0, 0, 0, 0, 0, 1, 0,
		0, 1, 1, 0, 0, 0, 0, 1, 0,
		0, 1, 1, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 1, 1, 1, 0, 0,
	}
	both := make([]float64, 0, 2*len(faceData))
	for _, v := range append(append([]float64{}, faceData...), notFace...) {
		both = append(both, 2*v-1)
	}
	scores, err := definedDiscriminator.Forward(tensor.New(tensor.WithShape(2, imgHeight, imgWidth, imgChannels), tensor.WithBacking(both)), false)
	if err != nil {
		log.Fatalf("failed to score faces: %v", err)
	}
	fmt.Println("Discriminator's scores for [face, not a face]:", scores.Data())
}

func printGenerated(ts *gan.TrainingState) error {
	generated, err := ts.Generator.Forward(ts.Seed, false)
	if err != nil {
		return err
	}
	printFace(generated.Data().([]float64), 0)
	return nil
}

func defineDiscriminator() *gan.DiscriminatorNet {
	/*
		input(10,9) => NCHW => filters=12,size=3x3,conv(8,7) => size=2x2,maxpool(4,3) => 12*flatten(4*3) => linear(1, 12*4*3)
	*/
	return gan.Discriminator(
		gan.Transpose(0, 3, 1, 2),
		gan.Conv2D(imgChannels, 12, 3, 3, []int{0, 0}, []int{1, 1}, gan.ActivationRectify),
		gan.MaxPool2D(2, 2, []int{0, 0}, []int{2, 2}),
		gan.Flatten(),
		gan.Linear(12*4*3, 1, gan.ActivationSigmoid, true),
	)
}

func defineGenerator() *gan.GeneratorNet {
	/*
		input(16) => linear(32) => dropout(0.2) => linear(10*9) => reshape(10,9,1)
	*/
	return gan.Generator(latentSpaceSize,
		gan.Linear(latentSpaceSize, 32, gan.ActivationLeakyRectify, true),
		gan.Dropout(0.2),
		gan.Linear(32, imgHeight*imgWidth*imgChannels, gan.ActivationTanh, true),
		gan.Reshape(imgHeight, imgWidth, imgChannels),
	)
}
