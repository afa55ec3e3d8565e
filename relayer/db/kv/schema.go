package kv

// The schema will define how to store and retrieve data from the db. We
// treat the db as a key-value store, with a dedicated index bucket keeping
// jobs scannable per status in creation order.
var (
	// relayJobsBucket maps tx hash -> JSON encoded relay job.
	relayJobsBucket = []byte("relay-jobs")
	// jobStatusIndexBucket maps status byte || big endian created-at nanos ||
	// tx hash -> tx hash. Maintained atomically with every job write.
	jobStatusIndexBucket = []byte("relay-job-status-index")
)
