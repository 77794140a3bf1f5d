package log

// Common field names for structured logging
const (
	FieldComponent        = "component"
	FieldSource           = "source"
	FieldEntryID          = "entry_id"
	FieldNativeID         = "native_id"
	FieldRule             = "rule"
	FieldPeriod           = "period"
	FieldReportKind       = "report_kind"
	FieldAmountCents      = "amount_cents"
	FieldCurrency         = "currency"
	FieldCategory         = "category"
	FieldVendor           = "vendor"
	FieldAcceptedCount    = "accepted_count"
	FieldDuplicateCount   = "duplicate_count"
	FieldQuarantinedCount = "quarantined_count"
	FieldRecordCount      = "record_count"
	FieldDuration         = "duration_ms"
	FieldError            = "error"
	FieldOperation        = "operation"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentIngestion  = "ingestion"
	ComponentValidation = "validation"
	ComponentNormalize  = "normalize"
	ComponentReport     = "report"
	ComponentStorage    = "storage"
	ComponentSource     = "source"
	ComponentFX         = "fx"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
)

// Operations defines standard operation names
const (
	OpFetch     = "fetch"
	OpScreen    = "screen"
	OpTransform = "transform"
	OpAppend    = "append"
	OpGenerate  = "generate"
	OpPublish   = "publish"
	OpConsume   = "consume"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
