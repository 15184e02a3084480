// Package bridge connects the front-end development host to a Django
// backend running in a separate process.
//
// New asks the backend for its configuration once, merges it with the
// user's options into an immutable ResolvedConfig and returns two plugins
// for the host:
//
//   - the core plugin contributes host configuration (root, base, build
//     options, aliases), publishes the dev server URL to the backend's
//     marker file when the listener binds, removes that file on termination,
//     rewrites the placeholder origin in served sources and answers
//     /index.html with an informational page;
//   - the reloader plugin asks browsers for a full reload when backend-owned
//     files (templates, Python sources) change.
//
// State that outlives a single call to New, such as the cached backend
// version and the termination-handler guard, lives in a ProcessState the
// caller creates once per process.
package bridge
