package model

import (
	"fmt"
	"strings"

	apperrors "orctorrent/internal/errors"

	"github.com/go-playground/validator/v10"
)

const (
	MaxNameHintLength  = 1000
	MaxSavePathLength  = 4096
	MaxTorrentBase64   = 13 << 20
	MaxTorrentBytes    = 10 << 20
	MaxPatchPaths      = 10000
	MaxPathDepth       = 100
	MaxComponentLength = 255
)

var validate = validator.New()

// Validate checks v's struct tags and reports failures as InvalidInput.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "invalid request")
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return apperrors.New(apperrors.CodeInvalidInput, "validation failed: "+strings.Join(parts, ", "))
}

type AddTorrentRequest struct {
	Magnet     *string `json:"magnet" validate:"omitempty,max=8192"`
	TorrentB64 *string `json:"torrent_b64" validate:"omitempty,max=13631488"`
	NameHint   *string `json:"name_hint" validate:"omitempty,max=1000"`
	// SavePath is the folder to download into or seed from. Defaults to
	// the daemon download directory.
	SavePath *string `json:"save_path" validate:"omitempty,max=4096"`
}

func (r *AddTorrentRequest) Validate() error {
	if err := Validate(r); err != nil {
		return err
	}
	if r.NameHint != nil && len(*r.NameHint) > MaxNameHintLength {
		return apperrors.New(apperrors.CodeInvalidInput, fmt.Sprintf("Name hint too long (max %d chars)", MaxNameHintLength))
	}
	if r.SavePath != nil {
		trimmed := strings.TrimSpace(*r.SavePath)
		switch {
		case trimmed == "":
			return apperrors.New(apperrors.CodeInvalidInput, "save_path cannot be empty")
		case len(trimmed) > MaxSavePathLength:
			return apperrors.New(apperrors.CodeInvalidInput, fmt.Sprintf("save_path too long (max %d chars)", MaxSavePathLength))
		case strings.ContainsRune(trimmed, 0):
			return apperrors.New(apperrors.CodeInvalidInput, "save_path cannot contain null bytes")
		}
	}
	switch {
	case r.Magnet == nil && r.TorrentB64 == nil:
		return apperrors.New(apperrors.CodeInvalidInput, "Must provide either magnet or torrent_b64")
	case r.Magnet != nil && r.TorrentB64 != nil:
		return apperrors.New(apperrors.CodeInvalidInput, "Cannot provide both magnet and torrent_b64")
	}
	return nil
}

type AddTorrentResponse struct {
	ID string `json:"id"`
}

type PatchFilePriorityRequest struct {
	Paths    [][]string   `json:"paths" validate:"max=10000,dive,max=100,dive,max=255"`
	Priority FilePriority `json:"priority" validate:"required,oneof=skip low normal high"`
}

func (r *PatchFilePriorityRequest) Validate() error {
	return Validate(r)
}

type PatchKillSwitchRequest struct {
	Enabled        *bool               `json:"enabled"`
	Scope          *KillSwitchScope    `json:"scope" validate:"omitempty,oneof=torrent_only app_level"`
	GracePeriodSec *uint64             `json:"grace_period_sec" validate:"omitempty,max=3600"`
	Triggers       *KillSwitchTriggers `json:"triggers"`
	VPNSource      *VPNSourcePatch     `json:"vpn_source"`
}

type VPNSourcePatch struct {
	AutoDetect      *bool    `json:"auto_detect"`
	AllowedAdapters []string `json:"allowed_adapters" validate:"max=64,dive,min=1,max=64"`
}

func (r *PatchKillSwitchRequest) Validate() error {
	return Validate(r)
}
