// Package condition evaluates the routing expressions attached to approval
// template steps, such as `amount > 50000 and project.level == "A"`.
//
// Grammar:
//
//	expr       = or
//	or         = and { ("or" | "||") and }
//	and        = unary { ("and" | "&&") unary }
//	unary      = ("not" | "!") unary | primary
//	primary    = "(" expr ")" | operand [ cmp operand ]
//	cmp        = "==" | "!=" | ">" | ">=" | "<" | "<="
//	operand    = number | string | "true" | "false" | path
//	path       = ident { "." ident }
//
// Expressions can only read the supplied context map. There are no function
// calls, no arithmetic and no access to anything outside the context.
// Unknown fields, type mismatches and syntax errors are reported as *Error,
// never as a false result.
package condition
