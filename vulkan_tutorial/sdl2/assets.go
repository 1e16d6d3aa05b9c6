package main

import (
	"bytes"
	"embed"
	"io"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/frames/vulkan"
	"golang.org/x/sync/errgroup"
)

//go:embed meshes
var fileSystem embed.FS

type assets struct {
	vertexShader   []byte
	fragmentShader []byte
	mesh           vulkan.Mesh
	// pipelineCache is nil when no cache file exists yet.
	pipelineCache []byte
}

// loadAssets reads the shaders, the mesh and the pipeline cache concurrently.
func loadAssets(cfg AssetConfig) (*assets, error) {
	var a assets
	var g errgroup.Group

	g.Go(func() error {
		var err error
		a.vertexShader, err = os.ReadFile(cfg.VertexShader)
		return errors.Wrap(err, "vertex shader")
	})

	g.Go(func() error {
		var err error
		a.fragmentShader, err = os.ReadFile(cfg.FragmentShader)
		return errors.Wrap(err, "fragment shader")
	})

	g.Go(func() error {
		var err error
		a.mesh, err = loadMesh(cfg.Mesh, cfg.Material)
		return errors.Wrap(err, "mesh")
	})

	g.Go(func() error {
		if cfg.PipelineCache == "" {
			return nil
		}

		data, err := os.ReadFile(cfg.PipelineCache)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		a.pipelineCache = data
		return errors.Wrap(err, "pipeline cache")
	})

	err := g.Wait()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func loadMesh(path, materialPath string) (vulkan.Mesh, error) {
	if path == "" {
		objData, err := fileSystem.ReadFile("meshes/cube.obj")
		if err != nil {
			return vulkan.Mesh{}, err
		}
		mtlData, err := fileSystem.ReadFile("meshes/cube.mtl")
		if err != nil {
			return vulkan.Mesh{}, err
		}
		return vulkan.LoadMesh(bytes.NewReader(objData), bytes.NewReader(mtlData))
	}

	objFile, err := os.Open(path)
	if err != nil {
		return vulkan.Mesh{}, err
	}
	defer objFile.Close()

	var mtl io.Reader
	if materialPath != "" {
		mtlFile, err := os.Open(materialPath)
		if err != nil {
			return vulkan.Mesh{}, err
		}
		defer mtlFile.Close()
		mtl = mtlFile
	}

	return vulkan.LoadMesh(objFile, mtl)
}
