package sessiontxn

// Command whitelists enforced by BeginOrContinueTxn when autocommit is
// false (§6).
var anyDatabaseTxnCommands = map[string]bool{
	"abortTransaction":          true,
	"aggregate":                 true,
	"commitTransaction":         true,
	"coordinateCommitTransaction": true,
	"delete":                    true,
	"distinct":                  true,
	"doTxn":                     true,
	"find":                      true,
	"findandmodify":             true,
	"findAndModify":             true,
	"geoSearch":                 true,
	"getMore":                   true,
	"insert":                    true,
	"killCursors":               true,
	"prepareTransaction":        true,
	"update":                    true,
}

// testCommandTxnCommands are additionally allowed when test commands are
// enabled.
var testCommandTxnCommands = map[string]bool{
	"dbHash": true,
}

var adminDatabaseTxnCommands = map[string]bool{
	"abortTransaction":            true,
	"commitTransaction":           true,
	"coordinateCommitTransaction": true,
	"doTxn":                       true,
	"prepareTransaction":          true,
}

var forbiddenTxnDatabases = map[string]bool{
	"config": true,
	"local":  true,
}

// WhitelistOptions toggles the optional parts of the command whitelist.
type WhitelistOptions struct {
	TestCommandsEnabled bool
}

// checkCommandWhitelisted enforces §6's command whitelist and forbidden
// database rules for a multi-statement transaction command.
func checkCommandWhitelisted(dbName, cmdName string, opts WhitelistOptions) error {
	if cmdName == "count" {
		return ErrOperationNotSupportedInTransaction
	}

	if dbName == "admin" {
		if adminDatabaseTxnCommands[cmdName] {
			return nil
		}
		return ErrOperationNotSupportedInTransaction
	}

	if forbiddenTxnDatabases[dbName] {
		return ErrOperationNotSupportedInTransaction
	}

	if anyDatabaseTxnCommands[cmdName] {
		return nil
	}
	if opts.TestCommandsEnabled && testCommandTxnCommands[cmdName] {
		return nil
	}
	return ErrOperationNotSupportedInTransaction
}
