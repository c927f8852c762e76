// Package models defines the settlement ledger's domain entities and the
// error kinds its operations return.
//
// # Entities
//
//   - Expense: a source transaction paid by one member of a group
//   - Split: one member's obligation to another for one expense
//   - HistoryEvent: an audit record of one or more settlements made together
//   - Allocation: the part of a HistoryEvent applied to one split
//
// # Design Principles
//
//  1. **Minor units only**: every amount is a money.Amount, never a float
//  2. **Versioned**: each stored entity carries Version for compare-and-set writes
//  3. **No pointers between entities**: relationships use ID strings
//  4. **Audit first**: history events are never deleted, only reversed
package models
