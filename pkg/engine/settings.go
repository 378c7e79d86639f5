package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"datapulse/pkg/runtime/constant"
	jsonpatch "github.com/evanphx/json-patch"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the runtime-editable knobs. Host and Port are the defaults
// used by a connect request that names no endpoint.
type Settings struct {
	Host             string          `json:"host"`
	Port             int             `json:"port"`
	EvaluateInterval metav1.Duration `json:"evaluateInterval"`
	StatusRevert     metav1.Duration `json:"statusRevert"`
}

func DefaultSettings() Settings {
	return Settings{
		Host:             "127.0.0.1",
		Port:             502,
		EvaluateInterval: metav1.Duration{Duration: constant.DefaultEvaluateInterval},
		StatusRevert:     metav1.Duration{Duration: constant.DefaultStatusRevert},
	}
}

func (s *Settings) Validate() error {
	var errs field.ErrorList
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, field.Invalid(field.NewPath("port"), s.Port, "must be between 0 and 65535"))
	}
	if s.EvaluateInterval.Duration < constant.MinEvaluateInterval {
		errs = append(errs, field.Invalid(field.NewPath("evaluateInterval"), s.EvaluateInterval.Duration.String(),
			fmt.Sprintf("must be at least %s", constant.MinEvaluateInterval)))
	}
	if s.StatusRevert.Duration <= 0 {
		errs = append(errs, field.Invalid(field.NewPath("statusRevert"), s.StatusRevert.Duration.String(), "must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, errs.ToAggregate())
	}
	return nil
}

// merge applies an RFC 7386 merge patch to s.
func (s Settings) merge(patch []byte) (Settings, error) {
	current, err := json.Marshal(s)
	if err != nil {
		return s, err
	}
	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	var next Settings
	if err := json.Unmarshal(merged, &next); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return next, nil
}
