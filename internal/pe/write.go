package pe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cilforge/internal/il"
)

// Target framework of the runtime config sidecar.
const (
	targetFramework  = "net8.0"
	frameworkName    = "Microsoft.NETCore.App"
	frameworkVersion = "8.0.0"
)

// Target names the framework written images run on, e.g.
// "net8.0 (Microsoft.NETCore.App 8.0.0)".
func Target() string {
	return targetFramework + " (" + frameworkName + " " + frameworkVersion + ")"
}

// Emit builds the image for decl and writes it to path, then writes the
// runtime config next to it. Nothing is written unless the whole image was
// built.
func Emit(decl *il.AssemblyDeclaration, path string, opt Options) (*Image, error) {
	img, err := Build(decl, opt)
	if err != nil {
		return nil, err
	}
	if err := WriteImage(path, img.Bytes); err != nil {
		return nil, err
	}
	return img, nil
}

// WriteImage stores already built image bytes at path together with the
// runtime config sidecar. Cached artifacts are written through it.
func WriteImage(path string, data []byte) error {
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("pe: write %s: %w", path, err)
	}
	if err := WriteRuntimeConfig(path); err != nil {
		return fmt.Errorf("pe: %w", err)
	}
	return nil
}

// RuntimeConfigPath is the sidecar path for an image: app.dll gives
// app.runtimeconfig.json.
func RuntimeConfigPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".runtimeconfig.json"
}

type runtimeConfig struct {
	RuntimeOptions struct {
		TFM       string `json:"tfm"`
		Framework struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"framework"`
	} `json:"runtimeOptions"`
}

// WriteRuntimeConfig writes the sidecar that lets the host run the image.
func WriteRuntimeConfig(imagePath string) error {
	var rc runtimeConfig
	rc.RuntimeOptions.TFM = targetFramework
	rc.RuntimeOptions.Framework.Name = frameworkName
	rc.RuntimeOptions.Framework.Version = frameworkVersion
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return err
	}
	path := RuntimeConfigPath(imagePath)
	if err := writeFile(path, append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
