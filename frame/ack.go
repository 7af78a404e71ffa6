package frame

// Valid values for the "ack" header entry on a SUBSCRIBE frame.
const (
	AckAuto             = "auto"              // no ack required
	AckClient           = "client"            // cumulative ack
	AckClientIndividual = "client-individual" // per-message ack
)
