// Package memory provides the object pool the hazard registry hands
// reclaimed objects to. Retiring into a pool instead of the garbage
// collector keeps hot allocation paths steady: the registry's free
// hook is simply pool.Put, and writers draw replacements with
// pool.Get.
package memory
