package vm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is bumped whenever the instruction set or Image layout
// changes incompatibly.
const ImageVersion = 1

// Image is a compiled program together with the hash of its source.
type Image struct {
	Version    int      `cbor:"version"`
	SourceHash string   `cbor:"sourceHash"`
	Program    *Program `cbor:"program"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// SourceHash returns the hex SHA-256 of source.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// MarshalImage serializes prog to canonical CBOR.
func MarshalImage(prog *Program, sourceHash string) ([]byte, error) {
	return cborEncMode.Marshal(&Image{Version: ImageVersion, SourceHash: sourceHash, Program: prog})
}

// UnmarshalImage deserializes an image and checks its version.
func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("vm: image version %d, want %d", img.Version, ImageVersion)
	}
	if img.Program == nil {
		return nil, fmt.Errorf("vm: image has no program")
	}
	return &img, nil
}
