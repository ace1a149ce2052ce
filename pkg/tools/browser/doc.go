// Package browser provides the agent's tool surface for driving a
// provisioned browser session.
//
// Every tool is bound to one session id when the run starts, so the model
// never chooses which browser it talks to. The surface has two layers:
//
//   - playwright_execute runs Playwright code with page, context and
//     browser bindings; read_page returns a cleaned snapshot of the DOM for
//     building selectors.
//   - The computer_* tools issue host-level input (screenshot, mouse,
//     scroll, keyboard, cursor) against the live view.
//
// A provider that rejects a request produces a failed tool result so the
// model can change strategy; only transport failures are returned as
// errors.
package browser
