package options

import (
	"fmt"

	"datapulse/pkg/runtime/constant"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

func Validate(o *Options) []error {
	var errs []error
	if err := o.BaseOptions.ValidateAndApply(); err != nil {
		errs = append(errs, err)
	}
	for _, err := range validateDevice(&o.Device, field.NewPath("device")) {
		errs = append(errs, err)
	}
	for _, err := range validateEngine(&o.Engine, field.NewPath("engine")) {
		errs = append(errs, err)
	}
	if len(o.Database) == 0 {
		errs = append(errs, field.Required(field.NewPath("database"), "the tag and alarm rule database is required"))
	}
	if (len(o.CertFile) == 0) != (len(o.KeyFile) == 0) {
		errs = append(errs, field.Invalid(field.NewPath("cert-file"), o.CertFile, "cert-file and key-file go together"))
	}
	return errs
}

func validateDevice(d *DeviceOptions, fldPath *field.Path) field.ErrorList {
	var errs field.ErrorList
	switch d.Transport {
	case TransportTcp, TransportSimulator:
	case TransportRtu:
		if _, err := constant.ParseParity(d.Parity); err != nil {
			errs = append(errs, field.NotSupported(fldPath.Child("parity"), d.Parity, constant.ParityNames()))
		}
		if _, err := constant.ParseStopBits(d.StopBits); err != nil {
			errs = append(errs, field.NotSupported(fldPath.Child("stop-bits"), d.StopBits, constant.StopBitsNames()))
		}
		if d.BaudRate <= 0 {
			errs = append(errs, field.Invalid(fldPath.Child("baud-rate"), d.BaudRate, "must be positive"))
		}
	default:
		errs = append(errs, field.NotSupported(fldPath.Child("transport"), d.Transport, []string{TransportTcp, TransportRtu, TransportSimulator}))
	}
	if d.Port < 0 || d.Port > 65535 {
		errs = append(errs, field.Invalid(fldPath.Child("port"), d.Port, "must be between 0 and 65535"))
	}
	if d.Timeout <= 0 {
		errs = append(errs, field.Invalid(fldPath.Child("timeout"), d.Timeout.String(), "must be positive"))
	}
	return errs
}

func validateEngine(e *EngineOptions, fldPath *field.Path) field.ErrorList {
	var errs field.ErrorList
	if e.EvaluateInterval < constant.MinEvaluateInterval {
		errs = append(errs, field.Invalid(fldPath.Child("evaluate-interval"), e.EvaluateInterval.String(),
			fmt.Sprintf("must be at least %s", constant.MinEvaluateInterval)))
	}
	if e.StatusRevert <= 0 {
		errs = append(errs, field.Invalid(fldPath.Child("status-revert"), e.StatusRevert.String(), "must be positive"))
	}
	if e.StopTimeout <= 0 {
		errs = append(errs, field.Invalid(fldPath.Child("stop-timeout"), e.StopTimeout.String(), "must be positive"))
	}
	if e.ViewCount <= 0 || e.ViewCount > constant.PerRequestMaxRegister {
		errs = append(errs, field.Invalid(fldPath.Child("view-count"), e.ViewCount, "must be between 1 and 125"))
	}
	return errs
}
