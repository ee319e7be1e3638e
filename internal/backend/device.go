package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/zhusy54/PTOTestingFramework/internal/environment"
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/logging"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/toolchain"
)

// launchDriver is the external launch entry point, relative to the
// runtime installation root.
const launchDriver = "bin/pto-run"

// Device drives the external runtime binary on real hardware. Inputs are
// staged as JSON next to the build, the driver executes the compiled
// binary, and outputs come back through results.json.
type Device struct {
	Env      environment.Env
	DeviceID int

	build *toolchain.Build
}

// deviceTensors is the JSON exchange format for staged inputs and results.
type deviceTensors struct {
	Tensors []deviceTensor `json:"tensors"`
}

type deviceTensor struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

func (d *Device) Bind(build *toolchain.Build) error {
	if build.Binary == "" {
		return errors.Bind(buildTest(build), pkgerrors.New("build carries no device binary"))
	}
	if _, err := os.Stat(build.Binary); err != nil {
		return errors.Bind(buildTest(build), pkgerrors.Wrap(err, "device binary"))
	}
	d.build = build
	return nil
}

func (d *Device) RegisterKernels() error {
	if d.build == nil {
		return errors.Bind("", pkgerrors.New("no build bound"))
	}
	// Registration happens inside the external runtime at launch; the
	// kernel listing travels in kernel_config.yaml.
	return nil
}

func (d *Device) Launch(ctx context.Context, tensors map[string]*tensor.Buffer) (map[string]*tensor.Buffer, error) {
	test := buildTest(d.build)
	if d.build == nil {
		return nil, errors.Bind(test, pkgerrors.New("launch before bind"))
	}

	runtimeRoot, err := d.Env.RequireRuntime()
	if err != nil {
		return nil, err
	}

	inputsPath := filepath.Join(d.build.Dir, "inputs.json")
	if err := d.stageInputs(inputsPath, tensors); err != nil {
		return nil, errors.Runtime(test, err)
	}
	resultsPath := filepath.Join(d.build.Dir, "results.json")

	args := []string{
		"--binary", d.build.Binary,
		"--config", filepath.Join(d.build.Dir, "kernel_config.yaml"),
		"--inputs", inputsPath,
		"--results", resultsPath,
		"--device", strconv.Itoa(d.DeviceID),
	}
	cmd := exec.CommandContext(ctx, filepath.Join(runtimeRoot, launchDriver), args...)
	cmd.Dir = d.build.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log := logging.Stage(test, "execute")
	log.Debug().Str("driver", cmd.Path).Int("device", d.DeviceID).Msg("launching")

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Timeout(test, "device execution exceeded the wall-clock budget")
		}
		return nil, errors.Runtime(test, pkgerrors.Errorf("%s: %v\n%s", launchDriver, err, stderr.String()))
	}

	return d.collectResults(test, resultsPath)
}

func (d *Device) stageInputs(path string, tensors map[string]*tensor.Buffer) error {
	var staged deviceTensors
	for _, t := range d.build.Config.Tensors {
		if t.Kind != "input" {
			continue
		}
		buf, ok := tensors[t.Name]
		if !ok {
			return pkgerrors.Errorf("no buffer for input tensor %q", t.Name)
		}
		staged.Tensors = append(staged.Tensors, deviceTensor{Name: t.Name, Values: buf.Data})
	}
	data, err := json.Marshal(staged)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (d *Device) collectResults(test, path string) (map[string]*tensor.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Runtime(test, pkgerrors.Wrap(err, "driver exited 0 but wrote no results"))
	}
	var results deviceTensors
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, errors.Runtime(test, pkgerrors.Wrap(err, "parse results"))
	}

	byName := make(map[string][]float64, len(results.Tensors))
	for _, rt := range results.Tensors {
		byName[rt.Name] = rt.Values
	}

	outputs := make(map[string]*tensor.Buffer)
	for _, t := range d.build.Config.Tensors {
		if t.Kind != "output" {
			continue
		}
		values, ok := byName[t.Name]
		if !ok {
			return nil, errors.Runtime(test, pkgerrors.Errorf("results missing output tensor %q", t.Name))
		}
		dt, ok := tensor.ParseDType(t.DType)
		if !ok {
			return nil, errors.Runtime(test, pkgerrors.Errorf("output tensor %q has unknown dtype %q", t.Name, t.DType))
		}
		if want := tensor.Shape(t.Shape).NumElements(); len(values) != want {
			return nil, errors.Runtime(test, pkgerrors.Errorf("output tensor %q holds %d values, shape %s needs %d",
				t.Name, len(values), tensor.Shape(t.Shape), want))
		}
		outputs[t.Name] = &tensor.Buffer{
			Spec: tensor.Spec{Name: t.Name, Shape: tensor.Shape(t.Shape), DType: dt, IsOutput: true},
			Data: values,
		}
	}
	return outputs, nil
}
