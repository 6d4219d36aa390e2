/*
Package dsl provides a fluent builder for workflow graphs.

Nodes are declared by ID and wired by ID, so a node can route to another one
that is declared further down. Build resolves every reference and returns a
validated graph.

Example usage:

	b := dsl.New()

	b.Add("classify").
		Run(classify).
		If("urgent", ref.Eq(ref.Output("classify", "priority"), "high")).Go("page").
		Else("normal").Go("ticket")

	b.Add("page").Run(page)
	b.Add("ticket").Run(ticket).Await("approval")

	g, err := b.Build()
*/
package dsl
