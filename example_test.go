package arbor_test

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ref"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/session"
)

func Example() {
	double := graph.NewNode("double", func(ctx context.Context, rc *graph.RunContext) (domain.Outputs, error) {
		return domain.Outputs{"value": rc.Input("n").(int) * 2}, nil
	})

	wf, err := arbor.New("doubler", double,
		arbor.WithInputsSchema(schema.Schema{"n": schema.Int()}),
		arbor.WithOutput("result", ref.Output("double", "value")),
	)
	if err != nil {
		panic(err)
	}

	res, err := wf.Run(context.Background(), arbor.WithInputs(map[string]any{"n": 21}))
	if err != nil {
		panic(err)
	}
	fmt.Println(res.Status, res.Outputs["result"])
	// Output: fulfilled 42
}

func Example_pauseAndResume() {
	b := dsl.New()
	b.Add("draft").
		Run(func(ctx context.Context, rc *graph.RunContext) (domain.Outputs, error) {
			return domain.Outputs{"text": "hello"}, nil
		}).
		Go("review")
	b.Add("review").
		Await("approval").
		Run(func(ctx context.Context, rc *graph.RunContext) (domain.Outputs, error) {
			return domain.Outputs{"approved": rc.External("approval")}, nil
		})
	g, err := b.Build()
	if err != nil {
		panic(err)
	}

	sessions := session.NewManager(memory.NewStore())
	wf, err := arbor.New("review", g,
		arbor.WithEmitters(sessions),
		arbor.WithResolvers(sessions),
		arbor.WithOutput("approved", ref.Output("review", "approved")),
	)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	first, err := wf.Run(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Println(first.Status, first.Pending)

	second, err := wf.Run(ctx,
		arbor.WithPreviousExecution(first.ExecutionID),
		arbor.WithExternalInputs(map[domain.Key]any{
			domain.ExternalKey("review", "approval"): true,
		}),
	)
	if err != nil {
		panic(err)
	}
	fmt.Println(second.Status, second.Outputs["approved"])
	// Output:
	// paused [external.review.approval]
	// fulfilled true
}

func ExampleWorkflow_Stream() {
	greet := graph.NewNode("greet", func(ctx context.Context, rc *graph.RunContext) (domain.Outputs, error) {
		return domain.Outputs{"message": "hi"}, nil
	})
	wf, err := arbor.New("greeter", greet)
	if err != nil {
		panic(err)
	}

	s, err := wf.Stream(context.Background())
	if err != nil {
		panic(err)
	}
	for ev := range s.Events() {
		fmt.Println(ev.Name)
	}
	fmt.Println(s.Result().Status)
	// Output:
	// workflow.execution.initiated
	// node.execution.initiated
	// node.execution.fulfilled
	// workflow.execution.fulfilled
	// fulfilled
}
