package cluster

const torquePlatform = "torque"

// NewTorque constructs a Torque task: the PBS composition and status commands
// under the torque platform tag.
func NewTorque(scripts interface{}, opts *Options) (*PBSTask, error) {
	return newPBSLike(torquePlatform, scripts, opts)
}
