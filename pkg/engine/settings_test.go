package engine

import (
	"testing"
	"time"

	"datapulse/pkg/runtime/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	s.EvaluateInterval = metav1.Duration{Duration: constant.MinEvaluateInterval}
	assert.NoError(t, s.Validate())

	s.EvaluateInterval = metav1.Duration{Duration: constant.MinEvaluateInterval - time.Millisecond}
	err := s.Validate()
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Contains(t, err.Error(), "evaluateInterval")
	assert.NotContains(t, err.Error(), "&Duration")
}

func TestSettingsMergeKeepsUntouchedFields(t *testing.T) {
	s := DefaultSettings()
	s.EvaluateInterval = metav1.Duration{Duration: 20 * time.Millisecond}

	next, err := s.merge([]byte(`{"port":1502}`))
	require.NoError(t, err)
	assert.Equal(t, 1502, next.Port)
	assert.Equal(t, 20*time.Millisecond, next.EvaluateInterval.Duration)
	assert.NoError(t, next.Validate())

	_, err = s.merge([]byte(`{"port":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidSettings)
}
