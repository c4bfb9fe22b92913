// ros3fs mounts an S3-compatible bucket as a read-only local file system.
//
// Usage:
//
//	ros3fs [flags] mount_point
package main

import "github.com/akawashiro/ros3fs/cmd"

func main() {
	cmd.Execute()
}
