package main

import (
	"flag"
	"log"

	gan "github.com/LdDl/gan-trainer-go"
)

func main() {
	modelDir := flag.String("model", "./models/1/", "Directory of exported generator")
	outDir := flag.String("out", "./samples", "Directory for generated grid")
	label := flag.String("label", "inference", "Label of generated grid file")
	num := flag.Int("n", 16, "Number of samples")
	seed := flag.Int64("seed", 42, "PRNG seed for latent vectors")
	flag.Parse()

	gen, err := gan.LoadGenerator(*modelDir)
	if err != nil {
		log.Fatalf("failed to load generator: %v", err)
	}
	defer gen.Close()

	noise := gan.NewNoiseSource(*seed).Normal(*num, gen.NoiseDim)
	sink := gan.NewImageGridSink(*outDir)
	if err := sink.Save(gen, *label, noise); err != nil {
		log.Fatalf("failed to generate samples: %v", err)
	}
	log.Printf("samples=%d file=%s", *num, sink.Path(*label))
}
