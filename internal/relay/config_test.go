package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"valid default", func(o *Options) {}, false},
		{"zero max reservations", func(o *Options) { o.MaxReservations = 0 }, true},
		{"negative max reservations", func(o *Options) { o.MaxReservations = -1 }, true},
		{"zero reservation ttl", func(o *Options) { o.ReservationTTL = 0 }, true},
		{"zero handshake timeout", func(o *Options) { o.HandshakeTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptions_EffectiveLimit(t *testing.T) {
	o := DefaultOptions()
	data, duration := o.effectiveLimit()
	assert.Equal(t, o.DefaultDataLimit, data)
	assert.Equal(t, o.DefaultDurationLimit, duration)

	o.ApplyConnectionLimits = false
	data, duration = o.effectiveLimit()
	assert.Equal(t, uint64(0), data)
	assert.Equal(t, time.Duration(0), duration)
}

func TestOptions_FunctionalOverrides(t *testing.T) {
	o := DefaultOptions()
	for _, opt := range []Option{
		WithMaxReservations(5),
		WithReservationTTL(time.Minute),
		WithDefaultDataLimit(2048),
		WithDefaultDurationLimit(10 * time.Second),
		WithHandshakeTimeout(5 * time.Second),
		WithConnectionLimits(false),
	} {
		opt(&o)
	}
	assert.Equal(t, 5, o.MaxReservations)
	assert.Equal(t, time.Minute, o.ReservationTTL)
	assert.Equal(t, uint64(2048), o.DefaultDataLimit)
	assert.Equal(t, 10*time.Second, o.DefaultDurationLimit)
	assert.Equal(t, 5*time.Second, o.HandshakeTimeout)
	assert.False(t, o.ApplyConnectionLimits)
}
