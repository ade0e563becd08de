/*
Package lwan is a small, high-throughput HTTP server built around a
multi-reactor connection engine.

One worker reactor runs per CPU. Each owns a private epoll set, a
death-queue ring for idle-connection reaping and a disjoint share of the
per-fd connection slab; a single acceptor thread drains the listen socket
and round-robins new connections into the workers. Request processing on a
connection runs as a cooperatively scheduled coroutine that suspends
whenever a read or write would block, and the reactor translates those
suspensions into epoll interest changes (edge-triggered for reads,
level-triggered for writes).

Handlers are mounted on a URL-prefix router and resolved by longest
matching prefix:

	cfg := config.New()
	application, err := app.New(cfg)
	if err != nil {
		...
	}

	application.SetHandlers([]router.Entry{
		{Prefix: "/status", Handler: status.New()},
		{Prefix: "/", Handler: files.New(logger), Args: map[string]string{"root": cfg.Root}},
	})

	application.Run()

Modules

  - core: the slab, worker reactors, acceptor and lifecycle sequencing
  - core/coro: the per-connection coroutine runtime
  - core/poller: the epoll wrapper
  - core/router: the URL-prefix trie
  - core/http: request parsing and response serialization
  - core/fcache: the change-watched static file cache
  - handlers/files, handlers/status: built-in handlers

Linux only: the engine is built directly on epoll.
*/
package lwan
