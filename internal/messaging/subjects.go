package messaging

// Subjects follow {domain}.{kind}.{resource}.
const (
	// SubjectSignalsLogging carries logging status-change signals: a JSON
	// object with the emitting interface and its changed properties.
	SubjectSignalsLogging = "redfish.signals.logging"

	// SubjectTelemetryReports carries metric report readings.
	SubjectTelemetryReports = "redfish.telemetry.reports"
)
