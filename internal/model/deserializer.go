package model

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

// ONNXDeserializer opens ONNX artifacts. Each call is independent: a failed
// attempt leaves nothing behind for the next one.
type ONNXDeserializer struct {
	// MetadataPath overrides the sidecar location. When empty the sidecar is
	// the artifact path with its extension replaced by ".json".
	MetadataPath string
	// LibraryPath points at the ONNX Runtime shared library.
	LibraryPath string
	// IntraOpThreads bounds per-session parallelism; 0 keeps the default.
	IntraOpThreads int
	// SerializePredict puts a lock around every Run call.
	SerializePredict bool
}

// Deserialize resolves the artifact's references under opts and opens a
// session for it.
func (d *ONNXDeserializer) Deserialize(ctx context.Context, path string, opts LoadOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := d.readMetadata(path)
	if err != nil {
		return nil, err
	}

	// The reconstructed loss only proves the artifact compiles under opts;
	// inference never evaluates it.
	if _, err := Resolve(meta, opts); err != nil {
		return nil, err
	}

	if err := InitEnvironment(d.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read graph inputs and outputs")
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.Newf("graph %s has no inputs or outputs", path)
	}
	if meta.InputName == "" {
		meta.InputName = inputs[0].Name
	}
	if meta.OutputName == "" {
		meta.OutputName = outputs[0].Name
	}

	fixedBatch := 0
	for _, in := range inputs {
		if in.Name == meta.InputName && len(in.Dimensions) > 0 && in.Dimensions[0] > 0 {
			fixedBatch = int(in.Dimensions[0])
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()

	if d.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(d.IntraOpThreads); err != nil {
			return nil, errors.Wrap(err, "failed to set intra-op threads")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{meta.InputName}, []string{meta.OutputName}, options)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ONNX session")
	}

	return &Session{
		session:    session,
		meta:       meta,
		fixedBatch: fixedBatch,
		serialize:  d.SerializePredict,
	}, nil
}

// SidecarPath returns where metadata for the artifact at path is looked up.
func (d *ONNXDeserializer) SidecarPath(path string) string {
	if d.MetadataPath != "" {
		return d.MetadataPath
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
}

func (d *ONNXDeserializer) readMetadata(path string) (Metadata, error) {
	metaFile, err := os.ReadFile(d.SidecarPath(path))
	if os.IsNotExist(err) && d.MetadataPath == "" {
		return Metadata{}.withDefaults(), nil
	}
	if err != nil {
		return Metadata{}, errors.Wrap(err, "failed to read metadata")
	}
	return ParseMetadata(metaFile)
}
