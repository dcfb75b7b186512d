package engine

import (
	"fmt"
	"os"

	"github.com/chazu/curly/vm"
)

// SaveImage compiles source and writes its program image to path.
func (e *Engine) SaveImage(path, source string) (*vm.Program, error) {
	prog, _, err := e.Compile(source)
	if err != nil {
		return nil, err
	}
	data, err := vm.MarshalImage(prog, vm.SourceHash(source))
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("writing image: %w", err)
	}
	log.Infof("wrote %s (%d instructions, %d bytes)", path, prog.Len(), len(data))
	return prog, nil
}

// LoadImage reads a program image written by SaveImage.
func LoadImage(path string) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	img, err := vm.UnmarshalImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img.Program, nil
}
