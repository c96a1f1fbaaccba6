package main

import (
	"flag"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/gazeprep/internal/inference"
)

func main() {
	libPath := flag.String("lib", os.Getenv("ORT_LIB_PATH"), "ONNX Runtime shared library")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: srprobe [--lib path] <model.onnx>")
		fmt.Fprintln(os.Stderr, "\nChecks that a super-resolution model loads and prints its tensors.")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	modelPath := flag.Arg(0)
	fmt.Printf("Probing model: %s\n", modelPath)

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		fmt.Printf("Error: File not found: %s\n", modelPath)
		os.Exit(1)
	}

	if err := inference.Initialize(*libPath); err != nil {
		fmt.Printf("Error: %v\n", err)
		fmt.Println("\nSet ORT_LIB_PATH or pass --lib with the onnxruntime shared library.")
		os.Exit(1)
	}
	defer inference.Shutdown()

	inputs, outputs, err := inference.Inspect(modelPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nInputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}

	fmt.Printf("\nOutputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}

	if len(inputs) != 1 || len(outputs) != 1 {
		fmt.Println("\nWarning: the upsampler expects one input and one output tensor")
	}

	fmt.Println("\nMetadata:")
	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		fmt.Printf("  (Could not read metadata: %v)\n", err)
		return
	}
	defer metadata.Destroy()

	if producer, err := metadata.GetProducerName(); err == nil {
		fmt.Printf("  Producer: %s\n", producer)
	}
	if version, err := metadata.GetVersion(); err == nil {
		fmt.Printf("  Version: %d\n", version)
	}
	if desc, err := metadata.GetDescription(); err == nil {
		fmt.Printf("  Description: %s\n", desc)
	}
}
