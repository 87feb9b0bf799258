// Package pipeline coordinates WhatsApp sales conversations.
//
// The Engine buffers inbound fragments per conversant, drains each queue
// into one user turn once the conversant has been quiet for a while, runs
// the completion engine (including at most one tool call per pass) and
// sends the answer back. A second loop reaps sessions that have been idle
// for too long.
//
// Basic usage:
//
//	store := session.NewStore(session.WithDefaults(session.Defaults{
//		SystemPrompt: prompt,
//		TokenBudget:  100000,
//		Tokenizer:    pipeline.NewTokenizer("openai", "gpt-4o-mini", logger),
//	}))
//	engine, err := pipeline.New(store, completionClient, whatsappClient,
//		pipeline.WithTools(registry),
//		pipeline.WithNotifier(notifier),
//		pipeline.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	if err := engine.Start(ctx); err != nil {
//		return err
//	}
//	defer engine.Stop(context.Background())
package pipeline
