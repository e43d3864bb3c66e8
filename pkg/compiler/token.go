package compiler

// TokenType discriminates the lexer's output.
type TokenType string

const (
	TokenText      TokenType = "TEXT"       // literal markup text
	TokenTagOpen   TokenType = "TAG_OPEN"   // <name, literal is the tag name
	TokenTagClose  TokenType = "TAG_CLOSE"  // >
	TokenSelfClose TokenType = "SELF_CLOSE" // />
	TokenEndTag    TokenType = "END_TAG"    // </name>, literal is the tag name
	TokenAttrName  TokenType = "ATTR_NAME"  // attribute name inside a tag
	TokenAssign    TokenType = "ASSIGN"     // = after an attribute name
	TokenAttrText  TokenType = "ATTR_TEXT"  // literal chunk of an attribute value
	TokenAttrEnd   TokenType = "ATTR_END"   // closing quote of an attribute value
	TokenOutput    TokenType = "OUTPUT"     // <?= ... ?>, literal is the inner expression
	TokenCode      TokenType = "CODE"       // <? ... ?>, literal is the inner code
	TokenRawText   TokenType = "RAW_TEXT"   // body of a raw passthrough region
	TokenEOF       TokenType = "EOF"
)

// Token is one lexed unit with its 1-based source position.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}
