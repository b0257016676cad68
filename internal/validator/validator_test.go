package validator

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cardRequest struct {
	FirstName string `json:"first_name" validate:"required,notblank,min=3,max=50"`
	Contact   string `json:"contact" validate:"required,contact"`
	Email     string `json:"email" validate:"required,email"`
}

func TestValidator_Validate(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		request cardRequest
		wantErr string
	}{
		{
			name:    "valid",
			request: cardRequest{FirstName: "Jane", Contact: "+237 650 00 00 00", Email: "jane@x.com"},
		},
		{
			name:    "blank_name",
			request: cardRequest{FirstName: "    ", Contact: "650000000", Email: "jane@x.com"},
			wantErr: "first_name is required",
		},
		{
			name:    "short_name",
			request: cardRequest{FirstName: "Jo", Contact: "650000000", Email: "jane@x.com"},
			wantErr: "first_name must be at least 3 characters",
		},
		{
			name:    "bad_contact",
			request: cardRequest{FirstName: "Jane", Contact: "call me", Email: "jane@x.com"},
			wantErr: "contact must be a phone number",
		},
		{
			name:    "bad_email",
			request: cardRequest{FirstName: "Jane", Contact: "650000000", Email: "jane"},
			wantErr: "email must be a valid email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.request)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrBadRequest)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDetectImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	allowed := []string{"image/jpeg", "image/png"}

	mime, ext, err := DetectImage(buf.Bytes(), allowed)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, ".png", ext)

	_, _, err = DetectImage([]byte("%PDF-1.4 not an image"), allowed)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, _, err = DetectImage(nil, allowed)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}
