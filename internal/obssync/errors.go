// Package obssync collects the error taxonomy shared by the OBS client,
// the master and slave engines, and the shell boundary, so that callers
// on either side of the boundary can errors.Is/As against a stable set of
// sentinels instead of matching on string content.
package obssync

import "errors"

// Sentinel errors. Component-level errors wrap one of these with %w so
// that errors.Is still matches after added context, mirroring the
// teacher's obs.Connect/authenticate wrapping style.
var (
	// ErrAuth indicates the OBS WebSocket password was rejected.
	ErrAuth = errors.New("obs: authentication failed")

	// ErrConnectRefused indicates the target host/port refused the TCP
	// or WebSocket handshake.
	ErrConnectRefused = errors.New("obs: connection refused")

	// ErrTimeout indicates a request exceeded its deadline.
	ErrTimeout = errors.New("obs: request timed out")

	// ErrProtocol indicates a message violated the expected wire shape
	// (unexpected op code, missing field) from a peer that is otherwise
	// reachable.
	ErrProtocol = errors.New("protocol: unexpected message")

	// ErrBindInUse indicates the master's listen address is already
	// bound by another process.
	ErrBindInUse = errors.New("master: listen address already in use")

	// ErrBindPermission indicates the process lacks permission to bind
	// the requested listen address.
	ErrBindPermission = errors.New("master: insufficient permission to bind listen address")

	// ErrNotRunning indicates a command was issued against a component
	// that has not been started (e.g. get_obs_sources before connect_obs).
	ErrNotRunning = errors.New("component not running")

	// ErrPeerGone indicates the remote end of a connection disappeared
	// mid-operation.
	ErrPeerGone = errors.New("peer connection gone")

	// ErrMalformedPayload indicates a received envelope's payload could
	// not be decoded into its expected shape.
	ErrMalformedPayload = errors.New("protocol: malformed payload")

	// ErrApplyFailed indicates the Applier could not apply a decoded
	// update to the local OBS instance.
	ErrApplyFailed = errors.New("slave: failed to apply update")

	// ErrSceneResolutionFailed indicates an inbound SceneItemRef could
	// not be resolved against the local OBS instance's scene graph.
	ErrSceneResolutionFailed = errors.New("slave: could not resolve scene item")

	// ErrImageTooLarge indicates a decoded image_update payload exceeded
	// the configured size cap.
	ErrImageTooLarge = errors.New("slave: image payload too large")

	// ErrUnsupported indicates a requested operation is not implemented
	// for the current role or OBS version.
	ErrUnsupported = errors.New("unsupported operation")
)
