/*
Package avpipe allows to compose media processing graphs out of pipes.

Concept

A pipe is a single processing unit. It receives buffers with Input and
control commands with Control, and sends buffers to its output pipe. Every
link between two pipes is described by a flow definition, which is sent
downstream before the first buffer it describes:

    source -> decoder -> play -> encoder -> sink

Pipes are allocated by managers. A manager is a factory shared by all pipes
of one kind:

    mgr := play.NewManager()
    p, err := avpipe.AllocVoid(mgr, probe)

Lifecycle

Pipes are reference counted. Use takes a reference, Release drops it. When
the last reference is dropped, the pipe is torn down in the following order:

    drain buffered output (Drainer);
    throw the dead event;
    free private state (Handler.Free);
    release probe and manager.

Bins (see bin package) outlive their last external reference while their
inner pipes are alive, they implement NoRefer to postpone the teardown.

Commands

Commands are typed structures handled with a type switch. A handler returns
ErrUnhandled for commands it doesn't know, this allows to chain handlers:

    func (h *handler) Control(cmd avpipe.Command) error {
        switch c := cmd.(type) {
        case *avpipe.SetFlowDef:
            return h.setFlowDef(c.Def)
        }
        return h.output.Control(cmd)
    }

Probes

Events (ready, dead, log messages, errors) are thrown to the probe of the
pipe. Probes can be chained, each one either handles the event or returns
ErrUnhandled so the next probe sees it. The log package provides logging
probes, the metric package counts events.
*/
package avpipe
