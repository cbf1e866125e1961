package bert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"yashubustudio/uptake/uptake"
)

// Input names of the exported classifier graph.
const (
	InputIDs      = "input_ids"
	AttentionMask = "attention_mask"
	TokenTypeIDs  = "token_type_ids"
)

// Session runs a multi-head classifier exported to ONNX. It implements
// uptake.Model.
type Session struct {
	sess    *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
	device  string
	modelID string
}

// Open loads the model described by cfg on the preferred device. With the
// auto device CUDA is tried first and CPU is used when it is unavailable.
func Open(cfg uptake.ModelConfig, logger zerolog.Logger) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	device, err := ParseDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	if err := acquireRuntime(cfg.OrtDLL); err != nil {
		return nil, err
	}
	s, err := open(cfg, device, logger)
	if err != nil {
		releaseRuntime()
		return nil, err
	}
	return s, nil
}

func open(cfg uptake.ModelConfig, device string, logger zerolog.Logger) (*Session, error) {
	inInfo, outInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	inputs, err := selectInputs(inInfo)
	if err != nil {
		return nil, err
	}
	outputs := make([]string, len(outInfo))
	for i, info := range outInfo {
		outputs[i] = info.Name
	}

	opts, chosen, err := sessionOptions(device)
	if err != nil {
		return nil, err
	}
	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputs, outputs, opts)
	opts.Destroy()
	if err != nil && chosen == uptake.DeviceCUDA && device == uptake.DeviceAuto {
		logger.Warn().Err(err).Msg("cuda session failed; falling back to cpu")
		opts, chosen, err = sessionOptions(uptake.DeviceCPU)
		if err != nil {
			return nil, err
		}
		sess, err = ort.NewDynamicAdvancedSession(cfg.ModelPath, inputs, outputs, opts)
		opts.Destroy()
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	modelID := cfg.ModelID
	if modelID == "" {
		modelID = filepath.Base(cfg.ModelPath)
	}
	logger.Info().
		Str("model", modelID).
		Str("device", chosen).
		Strs("heads", outputs).
		Msg("classifier loaded")
	return &Session{
		sess:    sess,
		inputs:  inputs,
		outputs: outputs,
		device:  chosen,
		modelID: modelID,
	}, nil
}

// selectInputs keeps the graph's input order. token_type_ids is optional,
// the other two are required.
func selectInputs(info []ort.InputOutputInfo) ([]string, error) {
	have := make(map[string]bool, len(info))
	names := make([]string, 0, len(info))
	for _, in := range info {
		switch in.Name {
		case InputIDs, AttentionMask, TokenTypeIDs:
			have[in.Name] = true
			names = append(names, in.Name)
		default:
			return nil, fmt.Errorf("model has unsupported input %q", in.Name)
		}
	}
	for _, req := range []string{InputIDs, AttentionMask} {
		if !have[req] {
			return nil, fmt.Errorf("model lacks input %q", req)
		}
	}
	return names, nil
}

// Device reports the execution provider in use.
func (s *Session) Device() string {
	return s.device
}

// Heads lists the output names of the graph.
func (s *Session) Heads() []string {
	out := make([]string, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// ModelID identifies the model for cache keys.
func (s *Session) ModelID() string {
	return s.modelID
}

// Predict runs the graph once and returns the requested heads. Heads the
// graph does not produce are absent from the result.
func (s *Session) Predict(ctx context.Context, enc uptake.Encoding, heads ...string) (map[string][]float32, error) {
	if s == nil || s.sess == nil {
		return nil, errors.New("session is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shape := ort.NewShape(enc.Shape()...)
	inputs := make([]ort.Value, 0, len(s.inputs))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range s.inputs {
		var data []int64
		switch name {
		case InputIDs:
			data = enc.InputIDs
		case AttentionMask:
			data = enc.AttentionMask
		case TokenTypeIDs:
			data = enc.TokenTypeIDs
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("%s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := make([]ort.Value, len(s.outputs))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()
	if err := s.sess.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}

	wanted := make(map[string]bool, len(heads))
	for _, h := range heads {
		wanted[h] = true
	}
	result := make(map[string][]float32, len(heads))
	for i, name := range s.outputs {
		if !wanted[name] {
			continue
		}
		t, ok := outputs[i].(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("head %q is not a float32 tensor", name)
		}
		data := t.GetData()
		vec := make([]float32, len(data))
		copy(vec, data)
		result[name] = vec
	}
	return result, nil
}

// Close releases the session and, for the last session, the runtime.
func (s *Session) Close() error {
	if s == nil || s.sess == nil {
		return nil
	}
	err := s.sess.Destroy()
	s.sess = nil
	releaseRuntime()
	return err
}
