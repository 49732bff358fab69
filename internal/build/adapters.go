package build

import "context"

// Compiler is the external build tool a platform delegates to once the
// environment is prepared.
type Compiler interface {
	Build(ctx context.Context, request CompileRequest) (Build, error)
}
