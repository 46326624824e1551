// Package partial builds values of any derived shape one member at a time.
//
// A Partial maintains a stack of frames, one per value under construction.
// Begin* methods descend into a member, Set / ParseText / SetDefault write
// the current frame, End commits it back into its parent, and Build hands
// the finished root to the caller. Every write is tracked so that Abandon
// can run drop operations for exactly the members that were initialized,
// no matter how deep construction got.
//
// Format drivers that receive members out of declaration order use
// BeginDeferred / FinishDeferred, which lets an unfinished member be left
// and re-entered by path.
package partial
