package plugin

// Spec is the registration record for one handler: what the plugin
// announces to the host. The wire layer serializes these during the
// registration handshake.
type Spec struct {
	Kind Kind    `json:"kind"`
	Name string  `json:"name"`
	Sync bool    `json:"sync"`
	Opts Options `json:"opts"`
}
