/*
Package attrpath builds and parses the hierarchical addresses used by the
attribute store.

A concrete path is a sequence of segments joined by a backslash and rooted
with a leading backslash, e.g. `\Data\Blocks\B1\Input\TEMP`. Path strings
are structural identity, not display text: nothing is escaped beyond the
delimiter itself.

Schemas address nodes through templates. A template uses `/` between
segments and may refer to bound collection variables with `{name}`:

	/Data/Blocks/{block}/Input/TEMP   absolute
	~/TEMP/MIXED                      relative to the enclosing instance base
	./MIXED or MIXED                  relative to the current scope node
	.                                 the current scope node itself
*/
package attrpath
