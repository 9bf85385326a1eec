package main

import (
	gan "github.com/LdDl/gan-trainer-go"
)

func defineGenerator(noiseDim int, sampleShape []int) *gan.GeneratorNet {
	/*
		noise(noiseDim) => linear(256) => linear(H*W*C) => reshape(H,W,C)
	*/
	outSize := 1
	for _, dim := range sampleShape {
		outSize *= dim
	}
	return gan.Generator(noiseDim,
		gan.Linear(noiseDim, 256, gan.ActivationLeakyRectify, true),
		gan.Linear(256, outSize, gan.ActivationTanh, true),
		gan.Reshape(sampleShape...),
	)
}

func defineDiscriminator(sampleShape []int, output gan.Activation) *gan.DiscriminatorNet {
	/*
		input(H,W,C) => NCHW => filters=16,size=3x3,stride=2,conv(H/2,W/2) => dropout(0.3) => flatten => linear(1)
		Output activation is dictated by losses: none (logits) unless probabilities are expected
	*/
	height, width, channels := sampleShape[0], sampleShape[1], sampleShape[2]
	filters := 16
	convHeight := (height-1)/2 + 1
	convWidth := (width-1)/2 + 1
	return gan.Discriminator(
		gan.Transpose(0, 3, 1, 2),
		gan.Conv2D(channels, filters, 3, 3, []int{1, 1}, []int{2, 2}, gan.ActivationLeakyRectify),
		gan.Dropout(0.3),
		gan.Flatten(),
		gan.Linear(filters*convHeight*convWidth, 1, output, true),
	)
}
