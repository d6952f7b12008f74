package quiz

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Decode reads a quiz set definition in YAML:
//
//	name: Capitals
//	questions:
//	  - body: Capital of France?
//	    choices:
//	      - body: Paris
//	        correct: true
//	      - body: Lyon
func Decode(r io.Reader) (CreateQuizSetRequest, error) {
	var req CreateQuizSetRequest

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode quiz set: %w", err)
	}

	return req, req.Validate()
}

func LoadFile(path string) (CreateQuizSetRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return CreateQuizSetRequest{}, fmt.Errorf("open quiz set: %w", err)
	}
	defer f.Close()

	return Decode(f)
}
