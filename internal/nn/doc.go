// Package nn provides runtime-shaped neural network layers.
//
// Every layer resolves its dimensions at construction time through an
// explicit InitLayer call rather than at compile time, so the same
// layer value can be sized from data. Layers expose forward activation
// (single sample and batched), backward error propagation and gradient
// computation against a borrowed SGDContext, and describe themselves to
// a container through a LayerKind plus a Capabilities record.
package nn
