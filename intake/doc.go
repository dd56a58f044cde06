// Package intake normalises the ways a user hands over files into one
// asynchronous read per file.
//
// Three entry points feed the same read: a multi-select file picker
// ([Intake.Pick]), a drop carrying an item list, and a drop carrying a
// plain file list (both [Intake.Drop]). [Intake.DragOver] and
// [Intake.DragLeave] maintain the drop target's highlight class.
//
//	in := intake.New(func(ctx context.Context, f intake.Loaded) {
//	    b.Invoke(ctx, bridge.Request{Name: f.Name, Data: f.Data})
//	})
//	in.Pick(ctx, &intake.PickEvent{Files: files})
//	in.Wait()
//
// A drop or pick without files reads nothing. Read failures are logged
// and otherwise ignored.
package intake
