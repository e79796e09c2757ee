// Package git fetches patch units published in git repositories.
//
// A patch entry of the form git+<url>[#<ref>] names a remote and an optional
// branch or tag. The remote is cloned (shallow for network remotes) into the
// run's workspace and then treated like any local patch directory.
package git
