// Package hostauth verifies passwords and resolves group membership from the
// host account databases. It is the credential backend the privileged worker
// holds; the unprivileged server never imports it directly.
//
// Supported shadow hash formats are md5-crypt ($1$), sha256-crypt ($5$),
// sha512-crypt ($6$) and bcrypt ($2a$, $2b$, $2y$). Anything else (Ubuntu's
// yescrypt $y$ for instance) is delegated to su(1) behind a PTY when the su
// fallback is enabled.
package hostauth
