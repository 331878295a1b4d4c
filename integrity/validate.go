package integrity

import (
	"log/slog"
	"slices"

	milow "github.com/milow-app/milow-functions"
)

// Validation messages.
const (
	MsgBasicIntegrity  = "Device does not meet basic integrity"
	MsgPackageMismatch = "Package name mismatch"
	MsgVerified        = "Integrity verified"
)

// Validate applies the acceptance policy to v. Checks run in order and the
// first failure wins:
//
//  1. the device labels must include MEETS_BASIC_INTEGRITY;
//  2. an UNRECOGNIZED_VERSION or UNEVALUATED app verdict is only logged;
//  3. the reported package name, when present, must equal expectedPackage.
//
// A nil logger discards the warnings.
func Validate(v *milow.IntegrityVerdict, expectedPackage string, logger *slog.Logger) milow.ValidationResult {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	labels := v.DeviceLabels()
	if !slices.Contains(labels, milow.MeetsBasicIntegrity) {
		return milow.ValidationResult{Valid: false, Message: MsgBasicIntegrity}
	}
	if !slices.Contains(labels, milow.MeetsDeviceIntegrity) {
		logger.Info("device lacks device integrity", "labels", labels)
	}

	switch app := v.AppRecognition(); app {
	case milow.AppUnrecognizedVersion, milow.AppUnevaluated:
		logger.Warn("app integrity warning", "verdict", app)
	}

	if pkg := v.PackageName(); pkg != "" && pkg != expectedPackage {
		return milow.ValidationResult{Valid: false, Message: MsgPackageMismatch}
	}

	return milow.ValidationResult{Valid: true, Message: MsgVerified}
}
